package domain

import "time"

// EncryptedSecret is a ciphertext record produced by the credential vault.
// The nonce is not secret and is stored beside the ciphertext so each
// encryption of the same plaintext yields a distinct record.
type EncryptedSecret struct {
	Nonce      []byte `bson:"nonce" json:"nonce"`
	Ciphertext []byte `bson:"ciphertext" json:"ciphertext"`
}

// Credential holds a user's panel API key at rest. The key is always
// encrypted; plaintext never crosses the repository contract.
type Credential struct {
	UserID          string          `bson:"user_id" json:"user_id"`
	EncryptedAPIKey EncryptedSecret `bson:"encrypted_api_key" json:"encrypted_api_key"`
	PanelURL        string          `bson:"panel_url" json:"panel_url"`
	VerifiedAt      time.Time       `bson:"verified_at" json:"verified_at"`
}
