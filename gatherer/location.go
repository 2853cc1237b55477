package gatherer

import "context"

// NoLocation is the location reported when none could be retrieved.
const NoLocation = "n/a"

// Location returns the current page address of s. It never fails: when the
// address cannot be read the value is NoLocation.
//
// Native-app sessions have no addressable URL, so a driver error here is
// expected there and only logged at debug level.
func (g *Gatherer) Location(ctx context.Context, s Session) Result[string] {
	log := g.log()
	log.Debug("gatherer: location: entering", "session", s != nil)

	if s == nil {
		return Result[string]{Value: NoLocation, Status: StatusUnavailable, Err: ErrNoSession}
	}

	loc, err := s.CurrentURL(ctx)
	if err != nil {
		log.Debug("gatherer: current location could not be retrieved; safe to ignore for non-web sessions",
			"error", err,
		)
		return failed(NoLocation, err)
	}

	log.Debug("gatherer: location: exiting", "location", loc)
	return ok(loc)
}

// Location is Gatherer.Location with default options.
func Location(ctx context.Context, s Session) Result[string] {
	return (*Gatherer)(nil).Location(ctx, s)
}
