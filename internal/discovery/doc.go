// Package discovery advertises the hub's HTTP facade on the local network
// with mDNS/DNS-SD, so operator consoles can find it without configuration.
//
// The service type defaults to _rfidhub._tcp. TXT records carry the hub id,
// version, API path, TLS flag and reader count.
package discovery
