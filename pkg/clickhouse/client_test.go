package clickhouse

import (
	"net/url"
	"testing"
	"time"
)

func TestBuildDSN(t *testing.T) {
	cfg := *defaultClientConfig()
	cfg.Host = "ch.local"
	cfg.Password = "p@ss"
	cfg.MaxExecTime = 30 * time.Second
	cfg.AsyncInsert = true
	cfg.WaitForAsync = true

	u, err := url.Parse(buildDSN(cfg))
	if err != nil {
		t.Fatalf("dsn does not parse: %v", err)
	}
	if u.Scheme != "clickhouse" || u.Host != "ch.local:9000" || u.Path != "/default" {
		t.Fatalf("dsn = %s", u)
	}
	if pw, _ := u.User.Password(); pw != "p@ss" {
		t.Fatalf("password = %q", pw)
	}
	q := u.Query()
	if q.Get("max_execution_time") != "30" || q.Get("async_insert") != "1" || q.Get("wait_for_async_insert") != "1" {
		t.Fatalf("query = %v", q)
	}
	if q.Get("dial_timeout") != "5s" {
		t.Fatalf("dial_timeout = %q", q.Get("dial_timeout"))
	}
}

func TestBuildDSNHTTP(t *testing.T) {
	cfg := *defaultClientConfig()
	cfg.Host = "ch.local"
	cfg.Port = 8123
	cfg.UseHTTP = true
	u, _ := url.Parse(buildDSN(cfg))
	if u.Scheme != "http" || u.Query().Get("async_insert") != "" {
		t.Fatalf("dsn = %s", u)
	}
}
