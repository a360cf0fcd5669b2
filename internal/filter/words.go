package filter

// DefaultBannedWords is the built-in denylist (French and English).
var DefaultBannedWords = []string{
	// French
	"merde", "putain", "con", "connard", "connasse", "salope", "enculé", "enculer",
	"bite", "chier", "chiant", "pute", "putes", "foutre", "fout", "bordel",
	"crétin", "crétine", "idiot", "idiote", "débile", "débiles",

	// English
	"fuck", "fucking", "shit", "damn", "bitch", "ass", "asshole", "bastard",
	"crap", "hell", "piss", "pissed", "dick", "cock", "pussy", "whore",
	"slut", "stupid", "moron", "retard", "fag", "nigger",
	"nigga", "cunt", "motherfucker", "motherfucking", "bullshit",
}
