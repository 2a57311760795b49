package env

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Load reads KEY=VALUE pairs from files, .env when none are given, into the
// process environment. config.LoadConfig binds every config key to its
// variable, so e.g. TABLE_STORAGE_AZURE_ACCOUNTNAME alone selects Azure.
// Variables already set win. A missing file is not an error.
func Load(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				log.Debug().Str("file", file).Msg("No env file")
				continue
			}
			return err
		}
	}
	return nil
}
