// Package profile manages the single local profile and its display name.
//
// The profile is created on first access with the name "User" and is never
// deleted. Rename trims its input, rejects empty names with an InvalidInput
// failure and otherwise commits the new name.
package profile
