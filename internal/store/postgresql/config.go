package postgresql

import (
	"net"
	"net/url"
	"strconv"

	"github.com/loykin/checkin/internal/constants"
	"github.com/loykin/checkin/internal/util"
)

// applicationName tags checkin connections in pg_stat_activity.
const applicationName = "checkin"

// Config is either a full DSN or the parts to build one from.
type Config struct {
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString returns DSN when set, else a URL built from the parts with
// credentials escaped. Without a host it returns "".
func (p Config) ConnString() string {
	if dsn, ok := util.TrimEmptyCheck(p.DSN); ok {
		return dsn
	}
	host, ok := util.TrimEmptyCheck(p.Host)
	if !ok {
		return ""
	}
	port := p.Port
	if port == 0 {
		port = constants.DefaultPostgresPort
	}
	fields := util.TrimSpaceFields(p.User, p.Password, p.DBName)
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + fields[2],
	}
	if fields[1] != "" {
		u.User = url.UserPassword(fields[0], fields[1])
	} else if fields[0] != "" {
		u.User = url.User(fields[0])
	}
	q := url.Values{}
	q.Set("sslmode", util.TrimWithDefault(p.SSLMode, constants.DefaultPostgresSSLMode))
	q.Set("application_name", applicationName)
	u.RawQuery = q.Encode()
	return u.String()
}

// ToMap is the Load input of Store.
func (p Config) ToMap() map[string]interface{} {
	return map[string]interface{}{"dsn": p.ConnString()}
}
