// Package main provides the entry point for the torrecon CLI.
//
// torrecon runs external reconnaissance tools (nmap, subfinder) through
// Tor, optionally requesting a fresh circuit per target, and records which
// exit identity each command ran under.
//
// Usage:
//
//	torrecon scan example.com --ports
//	torrecon scan --campaign a.example,b.example
//	torrecon scan --explain --profile paranoid
//
// See --help for all available options.
package main

func main() {
	Execute()
}
