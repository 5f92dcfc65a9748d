package params

const (
	// ParamsKeyPauses stores the module pause configuration.
	ParamsKeyPauses = "system/pauses"
	// ParamsKeyLending stores the lending parameter set.
	ParamsKeyLending = "lending/params"
	// ParamsKeyTreasury stores the lending fee destination address.
	ParamsKeyTreasury = "lending/treasury"
)
