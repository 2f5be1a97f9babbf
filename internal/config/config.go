package config // package config loads application configuration from environment variables

import (
    "log"  // log is used to report configuration errors and halt execution
    "os"   // os provides access to environment variables
    "time" // time parses the payment timeout

    "github.com/joho/godotenv" // godotenv loads a local .env file when present
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.  The types reflect how the values are used
// in the application: strings for identifiers and secrets, durations for
// timeouts.
type Config struct {
    Env       string // application environment (e.g. "dev", "prod")
    Port      string // HTTP port to listen on
    DBUser    string // database username
    DBPass    string // database password (optional)
    DBHost    string // database host address
    DBPort    string // database port number
    DBName    string // database name
    JWTSecret string // secret used to verify bearer tokens

    LogLevel  string // zap level: debug, info, warn, error
    LogFormat string // "json" for production output, anything else for console

    StripeAPIKey   string        // payment gateway API key
    Currency       string        // ISO currency code used for charges
    PaymentTimeout time.Duration // upper bound on one gateway round trip

    MailerAPIKey     string // MailerSend API key; empty disables email
    MailerFromName   string // sender display name
    MailerFromEmail  string // sender address
    MailerTemplateID string // confirmation email template
}

// Load reads configuration values from environment variables and returns
// a Config.  A .env file in the working directory is folded into the
// environment first.  Required variables are enforced by must() and
// missing values cause the program to exit with a fatal log message.
func Load() Config {
    _ = godotenv.Load()
    return Config{
        Env:       must("APP_ENV"),      // environment (dev/test/prod)
        Port:      must("APP_PORT"),     // port to bind the HTTP server
        DBUser:    must("DB_USER"),      // database user
        DBPass:    os.Getenv("DB_PASS"), // database password (empty allowed)
        DBHost:    must("DB_HOST"),      // database host
        DBPort:    must("DB_PORT"),      // database port
        DBName:    must("DB_NAME"),      // database name
        JWTSecret: must("JWT_SECRET"),   // secret used to verify bearer tokens

        LogLevel:  getenv("LOG_LEVEL", "info"),
        LogFormat: getenv("LOG_FORMAT", "console"),

        StripeAPIKey:   must("STRIPE_API_KEY"),
        Currency:       getenv("PAYMENT_CURRENCY", "usd"),
        PaymentTimeout: parseDur(getenv("PAYMENT_TIMEOUT", "30s")),

        MailerAPIKey:     os.Getenv("MAILERSEND_API_KEY"),
        MailerFromName:   getenv("MAILERSEND_FROM_NAME", "Ticketline"),
        MailerFromEmail:  os.Getenv("MAILERSEND_FROM_EMAIL"),
        MailerTemplateID: os.Getenv("MAILERSEND_TEMPLATE_ID"),
    }
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}
