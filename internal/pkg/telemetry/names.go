package telemetry

// Span names and attribute keys used for instrumentation.
const (
	TracerName = "github.com/doteapp/dote"

	SpanEndWalk        = "walk.end"
	SpanMergeTerritory = "territory.merge"
	SpanRebuild        = "territory.rebuild"

	AttrDogID      = "dote.dog_id"
	AttrSessionID  = "dote.session_id"
	AttrGainedKm2  = "dote.territory.gained_km2"
	AttrMergeFault = "dote.territory.merge_failed"
)
