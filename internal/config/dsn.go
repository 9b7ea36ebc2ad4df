package config

import (
	"fmt"
	"net"
	neturl "net/url"
	"strconv"
	"strings"
)

// DSNValue returns the MySQL DSN, building one from the host fields when no
// explicit DSN is configured.
func (c DatabaseConfig) DSNValue() string {
	if v := strings.TrimSpace(c.DSN); v != "" {
		return v
	}

	host := strings.TrimSpace(c.Host)
	if host == "" {
		host = defaultDBHost
	}
	port := c.Port
	if port == 0 {
		port = defaultDBPort
	}
	user := strings.TrimSpace(c.User)
	if user == "" {
		user = defaultDBUser
	}
	password := strings.TrimSpace(c.Password)
	if password == "" {
		password = defaultDBPassword
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = defaultDBName
	}
	charset := strings.TrimSpace(c.Charset)
	if charset == "" {
		charset = defaultDBCharset
	}
	loc := strings.TrimSpace(c.Loc)
	if loc == "" {
		loc = defaultDBLoc
	}

	params := neturl.Values{}
	for key, value := range c.Params {
		k := strings.TrimSpace(key)
		v := strings.TrimSpace(value)
		if k != "" && v != "" {
			params.Set(k, v)
		}
	}
	if params.Get("charset") == "" {
		params.Set("charset", charset)
	}
	if params.Get("parseTime") == "" {
		params.Set("parseTime", "True")
	}
	if params.Get("loc") == "" {
		params.Set("loc", loc)
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s)/%s", user, password,
		net.JoinHostPort(host, strconv.Itoa(port)), name)
	if query := params.Encode(); query != "" {
		dsn += "?" + query
	}
	return dsn
}

// URLValue returns the Redis URL, building one from the host fields when no
// explicit URL is configured.
func (c RedisConfig) URLValue() string {
	if v := strings.TrimSpace(c.URL); v != "" {
		return v
	}

	host := strings.TrimSpace(c.Host)
	if host == "" {
		host = defaultRedisHost
	}
	port := c.Port
	if port == 0 {
		port = defaultRedisPort
	}
	db := c.DB
	if db < 0 {
		db = 0
	}

	scheme := "redis"
	if c.TLS {
		scheme = "rediss"
	}

	u := &neturl.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + strconv.Itoa(db),
	}
	username := strings.TrimSpace(c.Username)
	password := strings.TrimSpace(c.Password)
	if username != "" {
		if password != "" {
			u.User = neturl.UserPassword(username, password)
		} else {
			u.User = neturl.User(username)
		}
	} else if password != "" {
		u.User = neturl.UserPassword("", password)
	}

	return u.String()
}
