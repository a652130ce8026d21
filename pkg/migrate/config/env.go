package config

import "os"

// values already present in the environment win over the .env file
func setEnv(env map[string]string) error {
	for k, val := range env {
		if _, ok := os.LookupEnv(k); ok {
			continue
		}
		if err := os.Setenv(k, val); err != nil {
			return err
		}
	}
	return nil
}
