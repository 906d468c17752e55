// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by outbound service calls (push delivery).
var HTTPClient = &http.Client{
	Timeout: 10 * time.Second,
}
