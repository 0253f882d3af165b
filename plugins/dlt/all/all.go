// Package all links every built-in datalink plugin into the binary.
package all

import (
	_ "firestige.xyz/tcpedit/plugins/dlt/chdlc"
	_ "firestige.xyz/tcpedit/plugins/dlt/en10mb"
	_ "firestige.xyz/tcpedit/plugins/dlt/linuxsll"
	_ "firestige.xyz/tcpedit/plugins/dlt/null"
	_ "firestige.xyz/tcpedit/plugins/dlt/raw"
	_ "firestige.xyz/tcpedit/plugins/dlt/user"
)
