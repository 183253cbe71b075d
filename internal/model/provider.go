package model

// ProviderConfig is the AI provider chosen for a tenant.
type ProviderConfig struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Model     string `json:"model"`
	APIKeyRef string `json:"api_key_ref,omitempty"`
	IsDefault bool   `json:"is_default"`
}
