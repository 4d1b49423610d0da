package reference

import (
	"fmt"
	"net"
	"net/url"

	"github.com/couchcryptid/vegplot-etl/internal/table"
)

// DSNFromCredentials builds a Postgres URL from a one-row credentials CSV
// with columns host, port, database, user and password, and optionally
// sslmode.
func DSNFromCredentials(path string) (string, error) {
	t, err := table.Read(path, table.ReadOptions{})
	if err != nil {
		return "", fmt.Errorf("read credentials: %w", err)
	}
	if err := t.Require("host", "database", "user"); err != nil {
		return "", fmt.Errorf("credentials %s: %w", path, err)
	}
	if t.Len() == 0 {
		return "", fmt.Errorf("credentials %s: no rows", path)
	}
	return credentialsDSN(t.Rows[0]), nil
}

func credentialsDSN(r table.Row) string {
	host := r["host"]
	if port := r["port"]; port != "" {
		host = net.JoinHostPort(host, port)
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(r["user"], r["password"]),
		Host:   host,
		Path:   "/" + r["database"],
	}
	if mode := r["sslmode"]; mode != "" {
		u.RawQuery = url.Values{"sslmode": {mode}}.Encode()
	}
	return u.String()
}
