package channel

// Well-known paths shared with the remote process.
const (
	TunerRoot = "/Tuning/BayesianTuner"

	KeyHeartbeat          = TunerRoot + "/Heartbeat"
	KeyTunerEnabled       = TunerRoot + "/TunerEnabled"
	KeyRuntimeStatus      = TunerRoot + "/TunerRuntimeStatus"
	KeyCurrentCoefficient = TunerRoot + "/CurrentCoefficient"
	KeyShotCount          = TunerRoot + "/ShotCount"
	KeyShotThreshold      = TunerRoot + "/ShotThreshold"
	KeyConnected          = TunerRoot + "/Connected"
	KeyLastError          = TunerRoot + "/LastError"
	KeyRunOptimization    = TunerRoot + "/RunOptimization"
	KeySkipToNext         = TunerRoot + "/SkipToNextCoefficient"
	KeyBacktrackTarget    = TunerRoot + "/BacktrackTarget"
	KeyTriggerBacktrack   = TunerRoot + "/TriggerBacktrack"
	KeyManualOverrides    = TunerRoot + "/ManualOverrides/"

	SolverRoot = "/FiringSolver"

	KeyPeerHeartbeat   = SolverRoot + "/Heartbeat"
	KeyShotTimestamp   = SolverRoot + "/ShotTimestamp"
	KeyHit             = SolverRoot + "/Hit"
	KeyDistance        = SolverRoot + "/Distance"
	KeyAccuracy        = SolverRoot + "/Accuracy"
	KeyPitch           = SolverRoot + "/Solution/pitchRadians"
	KeyExitVelocity    = SolverRoot + "/Solution/exitVelocity"
	KeyYaw             = SolverRoot + "/Solution/yawRadians"
	KeyCompetitionMode = SolverRoot + "/CompetitionMode"
	KeyInterlockRoot   = SolverRoot + "/Interlock/"

	// KeyFMSControlData is a bitfield; FMSAttachedBit is set during matches.
	KeyFMSControlData = "/FMSInfo/FMSControlData"
	FMSAttachedBit    = 0x10
)

// ManualOverrideKey returns the operator override path for a coefficient.
func ManualOverrideKey(name string) string {
	return KeyManualOverrides + name
}

// ShotCoefficientKey returns where the remote republishes a coefficient's
// value alongside a shot.
func ShotCoefficientKey(name string) string {
	return SolverRoot + "/" + name
}
