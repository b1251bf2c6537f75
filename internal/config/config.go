package config

import (
	"encoding/json"
	"fmt"
	"io/ioutil"

	"github.com/rs/zerolog/log"
)

// MustLoad loads the json config from the given path into v.
func MustLoad(path string, v interface{}) []byte {

	b, err := ioutil.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("could not load config from %s: %s", path, err.Error()))
	}

	err = json.Unmarshal(b, v)
	if err != nil {
		panic(fmt.Sprintf("could not unmarshal the config from %s: %s", path, err.Error()))
	}

	log.Info().Str("path", path).Msg("loaded config")

	return b
}
