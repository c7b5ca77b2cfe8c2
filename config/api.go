package config

type ApiConfig struct {
	Server struct {
		Host string `toml:"host" env:"LN_GATEWAY_HOST" env-default:"0.0.0.0"`
		Port string `toml:"port" env:"LN_GATEWAY_PORT" env-default:"8080"`
	} `toml:"server"`

	Database struct {
		Host            string `toml:"host" env:"LN_GATEWAY_DB_HOST"`
		Port            string `toml:"port" env:"LN_GATEWAY_DB_PORT" env-default:"5432"`
		User            string `toml:"user" env:"LN_GATEWAY_DB_USER"`
		Password        string `toml:"password" env:"LN_GATEWAY_DB_PASSWORD"`
		DB              string `toml:"db" env:"LN_GATEWAY_DB_NAME"`
		SslMode         string `toml:"ssl_mode" env:"LN_GATEWAY_DB_SSL_MODE" env-default:"disable"`
		MaxConns        int    `toml:"max_conns" env:"LN_GATEWAY_DB_MAX_CONNS" env-default:"25"`
		MinConns        int    `toml:"min_conns" env:"LN_GATEWAY_DB_MIN_CONNS" env-default:"5"`
		MaxConnLifetime int    `toml:"max_conn_lifetime" env:"LN_GATEWAY_DB_MAX_CONN_LIFETIME" env-default:"5"`
		MaxConnIdleTime int    `toml:"max_conn_idle_time" env:"LN_GATEWAY_DB_MAX_CONN_IDLE_TIME" env-default:"1"`
	} `toml:"database"`

	Redis struct {
		Host     string `toml:"host" env:"LN_GATEWAY_REDIS_HOST"`
		Port     string `toml:"port" env:"LN_GATEWAY_REDIS_PORT" env-default:"6379"`
		Password string `toml:"password" env:"LN_GATEWAY_REDIS_PASSWORD"`
		DB       int    `toml:"db" env:"LN_GATEWAY_REDIS_DB" env-default:"0"`
	} `toml:"redis"`

	Lnd struct {
		GRPCHost              string `toml:"grpc_host" env:"LN_GATEWAY_LND_GRPC_HOST"`
		GRPCPort              string `toml:"grpc_port" env:"LN_GATEWAY_LND_GRPC_PORT" env-default:"10009"`
		TLSCertPath           string `toml:"tls_cert_path" env:"LN_GATEWAY_LND_TLS_CERT_PATH"`
		MacaroonPath          string `toml:"macaroon_path" env:"LN_GATEWAY_LND_MACAROON_PATH"`
		Network               string `toml:"network" env:"LN_GATEWAY_LND_NETWORK" env-default:"mainnet"`
		PaymentTimeoutSeconds int    `toml:"payment_timeout_seconds" env:"LN_GATEWAY_LND_PAYMENT_TIMEOUT" env-default:"60"`
	} `toml:"lnd"`

	Auth struct {
		JWTSecret    string `toml:"jwt_secret" env:"LN_GATEWAY_JWT_SECRET"`
		JWTAlgorithm string `toml:"jwt_algorithm" env:"LN_GATEWAY_JWT_ALGORITHM" env-default:"HS256"`
	} `toml:"auth"`

	// Lnurl holds the public URL pieces and the protocol constants of the
	// withdraw/deposit flows. Amounts are satoshis unless noted.
	Lnurl struct {
		Schema                string `toml:"schema" env:"LN_GATEWAY_SCHEMA" env-default:"https://"`
		Domain                string `toml:"domain" env:"LN_GATEWAY_DOMAIN"`
		MinWithdrawSats       int64  `toml:"min_withdraw_sats" env:"LN_GATEWAY_MIN_WITHDRAW_SATS" env-default:"50000"`
		FeeLimitSats          int64  `toml:"fee_limit_sats" env:"LN_GATEWAY_FEE_LIMIT_SATS" env-default:"10000"`
		MinSendableSats       int64  `toml:"min_sendable_sats" env:"LN_GATEWAY_MIN_SENDABLE_SATS" env-default:"10000"`
		MaxSendableSats       int64  `toml:"max_sendable_sats" env:"LN_GATEWAY_MAX_SENDABLE_SATS" env-default:"100000000"`
		MinDepositSats        int64  `toml:"min_deposit_sats" env:"LN_GATEWAY_MIN_DEPOSIT_SATS" env-default:"100000"`
		ChallengeTTLSeconds   int    `toml:"challenge_ttl_seconds" env:"LN_GATEWAY_CHALLENGE_TTL" env-default:"600"`
		RateWindowSeconds     int    `toml:"rate_window_seconds" env:"LN_GATEWAY_RATE_WINDOW" env-default:"60"`
		PendingWindowSeconds  int    `toml:"pending_window_seconds" env:"LN_GATEWAY_PENDING_WINDOW" env-default:"300"`
	} `toml:"lnurl"`
}
