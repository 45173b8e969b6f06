package app

import (
	"github.com/specialistvlad/stalegrid/internal/registry"
	"github.com/specialistvlad/stalegrid/modules/checksum"
	"github.com/specialistvlad/stalegrid/modules/concat"
	"github.com/specialistvlad/stalegrid/modules/env_vars"
	"github.com/specialistvlad/stalegrid/modules/http_request"
	"github.com/specialistvlad/stalegrid/modules/print"
	"github.com/specialistvlad/stalegrid/modules/s3"
	"github.com/specialistvlad/stalegrid/modules/touch"
)

// coreModules is the definitive list of all modules that are compiled into
// the stalegrid binary.
var coreModules = []registry.Module{
	&checksum.Module{},
	&concat.Module{},
	&env_vars.Module{},
	&http_request.Module{},
	&print.Module{},
	&s3.Module{},
	&touch.Module{},
}
