// Package all registers every source reader with the source registry.
package all

import (
	_ "dwh/internal/source/csvsource"
	_ "dwh/internal/source/pgsource"
	_ "dwh/internal/source/sqlsource"
)
