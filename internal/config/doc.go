// Package config loads and validates the vine-gateway YAML configuration.
//
// Values in the format ${VAR_NAME} are expanded from the environment before
// parsing, so secrets like the JWT signing key can stay out of the file:
//
//	auth:
//	  jwt_secret: ${VINE_JWT_SECRET}
package config
