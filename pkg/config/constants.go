package config

// EnvPrefix is the envconfig prefix shared by all service binaries.
const EnvPrefix = "CLIPBLAZE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "CLIPBLAZE_DB_DSN"
	EnvDBHost = "CLIPBLAZE_DB_HOST"
	EnvDBUser = "CLIPBLAZE_DB_USER"
	EnvDBName = "CLIPBLAZE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

// Service kinds, used to pick which binary personality runs.
const (
	ServiceKindAPI             = "api"
	ServiceKindWorker          = "worker"
	ServiceKindOutboxPublisher = "outbox-publisher"
)
