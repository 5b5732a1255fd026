package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// German translations. English is the key language and needs no entries.
var german = map[string]string{
	// Report
	"Rule Set Analysis":                                    "Regelsatzanalyse",
	"Source: %s":                                           "Quelle: %s",
	"Run: %s":                                              "Lauf: %s",
	"Security score":                                       "Sicherheitswert",
	"Efficiency score":                                     "Effizienzwert",
	"Import warnings (%d)":                                 "Importwarnungen (%d)",
	"Rules: %d  Chains: %d  Tables: %d  Custom chains: %d": "Regeln: %d  Ketten: %d  Tabellen: %d  Eigene Ketten: %d",
	"%d rules excluded as invalid":                         "%d ungültige Regeln ausgeschlossen",
	"Findings (%d)":                                        "Befunde (%d)",
	"No issues found.":                                     "Keine Probleme gefunden.",
	"Severity":                                             "Schweregrad",
	"Kind":                                                 "Art",
	"Rules":                                                "Regeln",
	"Description":                                          "Beschreibung",
	"Recommendations":                                      "Empfehlungen",
	"impact %.1f%%":                                        "Wirkung %.1f%%",
	"Consolidations":                                       "Zusammenfassungen",
	"Merge %s in %s/%s into:":                              "%s in %s/%s zusammenfassen zu:",
	"Default policies":                                     "Standardrichtlinien",
	"Set %s/%s policy %s -> %s: %s":                        "Richtlinie von %s/%s %s -> %s setzen: %s",
	"Estimated savings":                                    "Geschätzte Einsparung",
	"Rules reduced: %d (%.1f%%)":                           "Regeln entfernt: %d (%.1f%%)",
	"Security gain: +%d  Efficiency gain: +%d":             "Sicherheitsgewinn: +%d  Effizienzgewinn: +%d",

	// History
	"No runs recorded.": "Keine Läufe aufgezeichnet.",
	"Time":              "Zeit",
	"Run":               "Lauf",
	"Findings":          "Befunde",
	"Security":          "Sicherheit",
	"Efficiency":        "Effizienz",
	"Source":            "Quelle",

	// CLI
	"Error: %v\n":                                "Fehler: %v\n",
	"Warning: %s\n":                              "Warnung: %s\n",
	"Wrote %s\n":                                 "%s geschrieben\n",
	"Configuration is valid\n":                   "Konfiguration ist gültig\n",
	"Rule set is valid: %d rules in %d chains\n": "Regelsatz ist gültig: %d Regeln in %d Ketten\n",
	"Rule set is invalid: %d rules excluded\n":   "Regelsatz ist ungültig: %d Regeln ausgeschlossen\n",
	"Removed %d rules, %d remain\n":              "%d Regeln entfernt, %d verbleiben\n",
	"Listening on %s\n":                          "Lausche auf %s\n",
	"Pruned %d runs\n":                           "%d Läufe gelöscht\n",

	// API
	"invalid limit":                  "ungültiges Limit",
	"invalid strict flag":            "ungültiger strict-Wert",
	"request body exceeds %d bytes":  "Anfrage überschreitet %d Bytes",
	"failed to read request body":    "Anfrage konnte nicht gelesen werden",
	"failed to import rules":         "Regeln konnten nicht importiert werden",
	"analysis canceled":              "Analyse abgebrochen",
	"invalid rules":                  "ungültige Regeln",
	"optimization failed":            "Optimierung fehlgeschlagen",
	"history is disabled":            "Verlauf ist deaktiviert",
	"run not found":                  "Lauf nicht gefunden",
	"failed to read history":         "Verlauf konnte nicht gelesen werden",
	"rate limit exceeded":            "Anfragelimit überschritten",
}

func init() {
	for key, msg := range german {
		_ = message.SetString(language.German, key, msg)
	}
}
