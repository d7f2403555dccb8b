package config

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/raider",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		Chat: ChatConfig{
			DefaultProvider:       "openai",
			CheckpointCadence:     100,
			RequestTimeoutSeconds: 300,
		},
		Ollama: OllamaConfig{
			Host: "http://localhost:11434",
		},
		Security: SecurityConfig{
			Method: string(SecurityPlainText),
		},
	}
}

func GenerateSystemConfigTemplate() string {
	return `# Raider System Configuration
# Location: ~/.config/raider/settings.toml
# This file uses TOML format: https://toml.io

# Directory where conversations, credentials and user config are stored
data_directory = "~/.local/share/raider"
`
}

func GenerateUserConfigTemplate() string {
	return `# Raider User Configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

[chat]
# Provider used when a request doesn't name one
default_provider = "openai"

# Persist the in-flight answer every N stream chunks
checkpoint_cadence = 100

# Abort a vendor stream after this many seconds
request_timeout_seconds = 300

[ollama]
# Ollama server URL
host = "http://localhost:11434"

[security]
# How API keys are stored: "plaintext" or "ssh_key"
method = "plaintext"

# Private key used to encrypt credentials (ssh_key method only)
# ssh_key_path = "~/.ssh/id_ed25519"
`
}
