package metrics

var publishTotal = PublishNamespace.NewLabeledCounter("total", "The number of publish operations by outcome", "outcome")

// PublishOutcome records one publish's outcome. outcome is one of the
// error Kind tokens from internal/errcode, or "Success".
func PublishOutcome(outcome string) {
	publishTotal.WithValues(outcome).Inc(1)
}
