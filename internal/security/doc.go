// Package security summarizes the engine's configured security posture and
// flags settings weaker than the production defaults.
package security
