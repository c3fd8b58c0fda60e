// Package config loads and validates tabulark configuration from CUE
// files. Files only state what they change; everything else falls back
// to DefaultConfig. Multiple sources are unified in order, so later
// files can constrain but not contradict earlier ones.
//
// Structural validation happens twice: CUE schemas catch type and range
// errors with file positions, and go-playground/validator checks the
// decoded structs before the configuration is handed to the engine.
package config
