package config

import (
	"testing"
	"time"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Research.Deadline != 10*time.Second {
		t.Fatalf("deadline = %v, want 10s", c.Research.Deadline)
	}
	if c.Research.Timeouts.Candles != 2500*time.Millisecond {
		t.Fatalf("candle timeout = %v", c.Research.Timeouts.Candles)
	}
	if c.Research.Timeframes.Short != "5m" || c.Research.Timeframes.Long != "4h" {
		t.Fatalf("timeframes = %+v", c.Research.Timeframes)
	}
	if !c.Metrics.Enabled {
		t.Fatalf("metrics should default to enabled")
	}
}

func TestParseKeepsExplicitFalse(t *testing.T) {
	c, err := Parse([]byte("environment: test\nbinance:\n  enabled: false\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Binance.Enabled {
		t.Fatalf("explicit false was overwritten by default")
	}
}

func TestValidateRejectsKafkaSinkWithoutBrokers(t *testing.T) {
	_, err := Parse([]byte("environment: test\nsink:\n  backend: kafka\n"))
	if err == nil {
		t.Fatalf("expected error for kafka sink without brokers")
	}
}

func TestValidateRejectsUnknownTimeframe(t *testing.T) {
	_, err := Parse([]byte("environment: test\nresearch:\n  primary_timeframe: 2h\n"))
	if err == nil {
		t.Fatalf("expected error for unsupported timeframe")
	}
}

func TestValidateRequiresSixtyCandles(t *testing.T) {
	if _, err := Parse([]byte("environment: test\nresearch:\n  min_candles: 59\n")); err == nil {
		t.Fatalf("expected error for min_candles below 60")
	}
	c, err := Parse([]byte("environment: test\nresearch:\n  min_candles: 60\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Research.MinCandles != 60 {
		t.Fatalf("min_candles = %d", c.Research.MinCandles)
	}
}
