package memory

import (
	"strings"

	"github.com/keeperhq/keeper/internal/config"
)

// registerDescriptions maps each narrative style to the register instruction
// embedded in story prompts.
var registerDescriptions = map[string]string{
	config.StyleRepublican: "a semi-classical register with Republican-era (1920s) color",
	config.StyleArchaic:    "an archaic, ornate register with classical overtones",
	config.StyleModern:     "a plain, direct modern register",
	config.StyleEerie:      "an eerie, uncanny register fitting Cthulhu-mythos horror",
}

// resolveRegister returns the register instruction for the configured style.
// "auto" falls back to keyword detection on the script summary; the keyword
// table covers Chinese-language campaign scripts, where this tooling
// originated, alongside plain year markers.
func resolveRegister(style, scriptSummary string) string {
	if desc, ok := registerDescriptions[style]; ok && style != config.StyleAuto {
		return desc
	}
	return registerDescriptions[detectStyle(scriptSummary)]
}

func detectStyle(scriptSummary string) string {
	switch {
	case strings.Contains(scriptSummary, "1920") || strings.Contains(scriptSummary, "民国"):
		return config.StyleRepublican
	case strings.Contains(scriptSummary, "中世纪") || strings.Contains(scriptSummary, "古代"):
		return config.StyleArchaic
	case strings.Contains(scriptSummary, "现代") || strings.Contains(scriptSummary, "当代"):
		return config.StyleModern
	default:
		return config.StyleEerie
	}
}
