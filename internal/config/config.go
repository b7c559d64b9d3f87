package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

type Application struct {
	Host       string      `koanf:"host"`
	Port       int         `koanf:"port"`
	Database   Database    `koanf:"db"`
	AMQP       AMQP        `koanf:"amqp"`
	Allocation Allocation  `koanf:"allocation"`
	Schedule   Schedule    `koanf:"schedule"`
	Recurring  []Recurring `koanf:"recurring"`
}

type Database struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Pass     string `koanf:"pass"`
	Name     string `koanf:"name"`
	Schema   string `koanf:"schema"`
	MaxConns int32  `koanf:"maxconns"`
}

// AMQP configures the forwarding of overspending alerts. Disabled unless a URL is set.
type AMQP struct {
	URL      string `koanf:"url"`
	Exchange string `koanf:"exchange"`
}

func (a AMQP) Enabled() bool {
	return a.URL != ""
}

type Allocation struct {
	Divisors Divisors `koanf:"divisors"`
}

// Divisors are kept as strings so no precision is lost before they reach decimal.
type Divisors struct {
	Weekly   string `koanf:"weekly"`
	Biweekly string `koanf:"biweekly"`
	Daily    string `koanf:"daily"`
}

type Schedule struct {
	// MaxSubPeriods caps the number of sub-periods per lower-case cadence name. 0 disables the cap.
	MaxSubPeriods map[string]int `koanf:"maxsubperiods"`
}

// Recurring describes one fixed recurring obligation, matched by category id or by its first two labels.
type Recurring struct {
	Name       string `koanf:"name"`
	CategoryId string `koanf:"categoryid"`
	Primary    string `koanf:"primary"`
	Detailed   string `koanf:"detailed"`
}

func defaults() Application {
	return Application{
		Host: "http://localhost:8181",
		Port: 8181,
		Database: Database{
			Host:     "localhost",
			Port:     5432,
			User:     "budgetly",
			Pass:     "",
			Name:     "budgetly",
			Schema:   "budgetly",
			MaxConns: 25,
		},
		AMQP: AMQP{
			Exchange: "budgetly.alerts",
		},
		Allocation: Allocation{
			Divisors: Divisors{
				Weekly:   "4.33",
				Biweekly: "2.17",
				Daily:    "30.4",
			},
		},
		Schedule: Schedule{
			MaxSubPeriods: map[string]int{"biweekly": 3},
		},
	}
}

func Load(path string) (Application, error) {
	var k = koanf.New(".")

	err := k.Load(structs.Provider(defaults(), "koanf"), nil)
	if err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Config file not found at %s, using defaults and environment variables", path)
		} else {
			log.Errorf("error loading config from YAML: %v", err)
			return Application{}, err
		}
	} else {
		log.Infof("Loaded configuration from file: %s", path)
	}

	err = k.Load(env.Provider(".", env.Opt{
		Prefix: "BUDGETLY_",
		TransformFunc: func(k, v string) (string, any) {
			// BUDGETLY_DB_HOST -> db.host
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, "BUDGETLY_")), "_", ".")
			return k, v
		},
	}), nil)
	if err != nil {
		log.Errorf("error loading config from envs: %v", err)
		return Application{}, err
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, err
	}

	return app, nil
}
