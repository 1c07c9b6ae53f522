package config

import "testing"

func TestParseEnv(t *testing.T) {
	type cfg struct {
		Port   int    `env:"ITEMWISE_TEST_PORT" envDefault:"8080"`
		DBPath string `env:"ITEMWISE_TEST_DB_PATH"`
	}

	t.Setenv("ITEMWISE_TEST_PORT", "9000")
	t.Setenv("ITEMWISE_TEST_DB_PATH", "/tmp/test.db")

	var c cfg
	if err := ParseEnv(&c); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if c.Port != 9000 {
		t.Errorf("expected port 9000, got %d", c.Port)
	}
	if c.DBPath != "/tmp/test.db" {
		t.Errorf("expected db path /tmp/test.db, got %q", c.DBPath)
	}
}

func TestParseEnvDefaults(t *testing.T) {
	type cfg struct {
		Port int `env:"ITEMWISE_TEST_UNSET_PORT" envDefault:"8080"`
	}

	var c cfg
	if err := ParseEnv(&c); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if c.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", c.Port)
	}
}
