package config

const (
	EnvPrefix = "PACKFINDERZ"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "PACKFINDERZ_APP_ENV"
	EnvPort     = "PACKFINDERZ_APP_PORT"
	EnvLogLevel = "PACKFINDERZ_LOG_LEVEL"

	EnvDBDSN  = "PACKFINDERZ_DB_DSN"
	EnvDBHost = "PACKFINDERZ_DB_HOST"
	EnvDBPort = "PACKFINDERZ_DB_PORT"
	EnvDBUser = "PACKFINDERZ_DB_USER"
	EnvDBPass = "PACKFINDERZ_DB_PASSWORD"
	EnvDBName = "PACKFINDERZ_DB_NAME"

	EnvRedisURL = "PACKFINDERZ_REDIS_URL"

	EnvGCPProjectID           = "PACKFINDERZ_GCP_PROJECT_ID"
	EnvPubSubFulfillmentTopic = "PACKFINDERZ_PUBSUB_FULFILLMENT_TOPIC"

	EnvCourierMappingsPath = "PACKFINDERZ_COURIER_STATUS_MAPPINGS_PATH"
	EnvSteadfastToken      = "PACKFINDERZ_STEADFAST_WEBHOOK_TOKEN"
	EnvPathaoSecret        = "PACKFINDERZ_PATHAO_WEBHOOK_SECRET"
	EnvRedXSecret          = "PACKFINDERZ_REDX_WEBHOOK_SECRET"
	EnvWebhookDedupTTL     = "PACKFINDERZ_WEBHOOK_DEDUP_TTL"
	EnvCronSchedule        = "PACKFINDERZ_CRON_SCHEDULE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
