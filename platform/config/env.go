package config

import "os"

var lookupEnv = os.LookupEnv
