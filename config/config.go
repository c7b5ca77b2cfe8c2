package config

import (
	"path/filepath"

	"github.com/ilyakaznacheev/cleanenv"
)

type Path string

func (p Path) Join(elem ...string) Path {
	parts := append([]string{string(p)}, elem...)
	return Path(filepath.Join(parts...))
}

func (p Path) ToString() string {
	return string(p)
}

func Load(path Path, cfg any) error {
	err := cleanenv.ReadConfig(path.ToString(), cfg)
	return err
}

// LoadEnv fills cfg from environment variables only, for deployments
// without a config file.
func LoadEnv(cfg any) error {
	return cleanenv.ReadEnv(cfg)
}
