package database

import (
	"database/sql"
	"time"

	"SocialSchedulerAPI/models"
	"SocialSchedulerAPI/utils"
)

// SaveCredentials upserts a user's platform credentials. Tokens are
// encrypted at rest; saving reactivates a previously disconnected platform.
func (d *Database) SaveCredentials(cred *models.PlatformCredentials) error {
	encryptedToken, err := utils.EncryptToken(cred.AccessToken)
	if err != nil {
		return err
	}
	encryptedSecret, err := utils.EncryptToken(cred.AccessSecret)
	if err != nil {
		return err
	}

	query := `INSERT INTO credentials (id, user_id, platform, access_token, access_secret, token_type, platform_user_id, is_active, expires_at, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, true, $8, $9, $9)
			  ON CONFLICT (user_id, platform)
			  DO UPDATE SET access_token = $4, access_secret = $5, token_type = $6,
			                platform_user_id = $7, is_active = true, expires_at = $8, updated_at = $9`

	_, err = d.DB.Exec(query, cred.ID, cred.UserID, cred.Platform, encryptedToken,
		encryptedSecret, cred.TokenType, cred.PlatformUserID, cred.ExpiresAt, time.Now())
	return err
}

// GetActiveCredential returns the decrypted credential for (user, platform),
// or nil when the platform is not connected or has been deactivated.
func (d *Database) GetActiveCredential(userID string, platform models.Platform) (*models.PlatformCredentials, error) {
	cred := &models.PlatformCredentials{}
	var encryptedToken, encryptedSecret string
	var platformUserID *string

	query := `SELECT id, user_id, platform, access_token, COALESCE(access_secret, ''), token_type,
			  platform_user_id, is_active, expires_at, created_at, updated_at
			  FROM credentials WHERE user_id = $1 AND platform = $2 AND is_active = true`

	err := d.DB.QueryRow(query, userID, platform).Scan(&cred.ID, &cred.UserID, &cred.Platform,
		&encryptedToken, &encryptedSecret, &cred.TokenType, &platformUserID, &cred.IsActive,
		&cred.ExpiresAt, &cred.CreatedAt, &cred.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cred.AccessToken, err = utils.DecryptToken(encryptedToken)
	if err != nil {
		return nil, err
	}
	if encryptedSecret != "" {
		cred.AccessSecret, err = utils.DecryptToken(encryptedSecret)
		if err != nil {
			return nil, err
		}
	}
	if platformUserID != nil {
		cred.PlatformUserID = *platformUserID
	}

	return cred, nil
}

// GetConnectedPlatforms lists the platforms a user has active credentials for.
func (d *Database) GetConnectedPlatforms(userID string) ([]models.Platform, error) {
	rows, err := d.DB.Query(
		`SELECT platform FROM credentials WHERE user_id = $1 AND is_active = true ORDER BY platform`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	platforms := []models.Platform{}
	for rows.Next() {
		var p models.Platform
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		platforms = append(platforms, p)
	}

	return platforms, rows.Err()
}

// DeactivateCredentials disconnects a platform without deleting the row, so
// reconnecting keeps history and the dispatcher sees it as missing.
func (d *Database) DeactivateCredentials(userID string, platform models.Platform) error {
	_, err := d.DB.Exec(
		`UPDATE credentials SET is_active = false, updated_at = $1 WHERE user_id = $2 AND platform = $3`,
		time.Now(), userID, platform)
	return err
}
