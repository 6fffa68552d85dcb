package builtin

import "github.com/ravskel/conveyor/internal/connector"

// Имена builtin-коннекторов в реестре.
const (
	NameHTTP    = "http"
	NameFile    = "file"
	NameMapping = "mapping"
	NameSleep   = "sleep"
	NameRules   = "rules"
)

// Register регистрирует все builtin-коннекторы в реестре.
func Register(reg *connector.Registry, staging *Staging) {
	reg.MustRegister(NameHTTP, NewHTTPExtractor(staging))
	reg.MustRegister(NameFile, NewFileConnector(staging))
	reg.MustRegister(NameMapping, NewMappingTransformer(staging))
	reg.MustRegister(NameSleep, NewSleepTransformer())
	reg.MustRegister(NameRules, NewRulesChecker())
}
