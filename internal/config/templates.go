package config

import (
	"fmt"
	"os"
)

const templateHeader = `# edgedash configuration
#
# Precedence: built-in defaults, this file, .env, then the environment
# (HOST, PORT, MT_HOST, MT_USER, MT_PASS, MT_USE_REST, MT_REST_PROTO,
# MT_REST_PORT, MT_TLS_INSECURE, CLOUDFLARED_TOKEN, EDGEDASH_LOG_LEVEL).
#
# router.user and router.password have no default. Leave them empty to run
# without the lease view.

`

// Template renders the default configuration as a commented TOML file.
func Template() ([]byte, error) {
	body, err := Render(Default(), true)
	if err != nil {
		return nil, err
	}
	return append([]byte(templateHeader), body...), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, template, 0o600)
}
