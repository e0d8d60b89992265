package config

import (
	"encoding/json"
	"os"

	"github.com/akimychev/converse/internal/flagx"
	"github.com/akimychev/converse/internal/timex"
)

// JsonConfig is the DTO for reading a JSON config file. Interval fields use
// timex.Duration so the file may say "15m" or give integer nanoseconds.
// After unmarshalling, its fields are copied into the runtime Config.
type JsonConfig struct {
	EndpointAddrHTTP             string         `json:"endpoint_addr_http"`
	DatabaseDSN                  string         `json:"database_dsn"`
	RedisAddr                    string         `json:"redis_addr"`
	RedisPassword                string         `json:"redis_password"`
	RedisDB                      int            `json:"redis_db"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	TokenLeeway                  timex.Duration `json:"token_leeway"`
	ConversationTTL              timex.Duration `json:"conversation_ttl"`
	ResponderTimeout             timex.Duration `json:"responder_timeout"`
	BcryptCost                   int            `json:"bcrypt_cost"`
	MaxUploadBytes               int64          `json:"max_upload_bytes"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	ModelEndpoint                string         `json:"model_endpoint"`
	ModelAPIKey                  string         `json:"model_api_key"`
	ModelName                    string         `json:"model_name"`
	ExtractorEndpoint            string         `json:"extractor_endpoint"`
	ExtractorAPIKey              string         `json:"extractor_api_key"`
}

// parseJson overlays values from the JSON file named by -c/-config, if any.
// Zero-valued fields in the file leave the current Config value untouched.
// A file that cannot be read or parsed panics: a misconfigured server should
// not start.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(data, c); err != nil {
		panic(err)
	}

	if c.EndpointAddrHTTP != "" {
		config.EndpointAddrHTTP = c.EndpointAddrHTTP
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.RedisAddr != "" {
		config.RedisAddr = c.RedisAddr
	}
	if c.RedisPassword != "" {
		config.RedisPassword = c.RedisPassword
	}
	if c.RedisDB != 0 {
		config.RedisDB = c.RedisDB
	}
	if c.SecretKey != "" {
		config.SecretKey = c.SecretKey
	}
	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration != 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.TokenLeeway.Duration != 0 {
		config.TokenLeeway = c.TokenLeeway.Duration
	}
	if c.ConversationTTL.Duration != 0 {
		config.ConversationTTL = c.ConversationTTL.Duration
	}
	if c.ResponderTimeout.Duration != 0 {
		config.ResponderTimeout = c.ResponderTimeout.Duration
	}
	if c.BcryptCost != 0 {
		config.BcryptCost = c.BcryptCost
	}
	if c.MaxUploadBytes != 0 {
		config.MaxUploadBytes = c.MaxUploadBytes
	}
	if c.S3RootUser != "" {
		config.S3RootUser = c.S3RootUser
	}
	if c.S3RootPassword != "" {
		config.S3RootPassword = c.S3RootPassword
	}
	if c.S3Bucket != "" {
		config.S3Bucket = c.S3Bucket
	}
	if c.S3Region != "" {
		config.S3Region = c.S3Region
	}
	if c.S3BaseEndpoint != "" {
		config.S3BaseEndpoint = c.S3BaseEndpoint
	}
	if c.ModelEndpoint != "" {
		config.ModelEndpoint = c.ModelEndpoint
	}
	if c.ModelAPIKey != "" {
		config.ModelAPIKey = c.ModelAPIKey
	}
	if c.ModelName != "" {
		config.ModelName = c.ModelName
	}
	if c.ExtractorEndpoint != "" {
		config.ExtractorEndpoint = c.ExtractorEndpoint
	}
	if c.ExtractorAPIKey != "" {
		config.ExtractorAPIKey = c.ExtractorAPIKey
	}
}
