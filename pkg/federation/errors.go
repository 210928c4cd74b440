package federation

import "github.com/datapunk/lake/pkg/lakeerr"

func unregisteredSourceError(name string) error {
	return lakeerr.New(lakeerr.KindInternal, "federation.unregistered_source", "no executor registered for data source").
		WithField(name)
}

func unknownSourceError(name string) error {
	return lakeerr.New(lakeerr.KindInput, "federation.unknown_source", "plan references an unconfigured data source").
		WithField(name)
}
