package config

import "os"

// ExpandEnv expands ${VAR} and $VAR references in raw YAML bytes. Missing
// variables expand to the empty string; validation is expected to catch any
// required field left blank as a result.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
