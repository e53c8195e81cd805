// Package discord implements the role platform on a Discord guild.
//
// Client talks to the Discord REST API through discordgo. Role lookups by
// name are cached, role changes of a diff are applied concurrently, and
// members are listed in pages keyed by the last member id.
package discord
