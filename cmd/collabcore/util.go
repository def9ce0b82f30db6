package main

import (
	"fmt"
	"strconv"

	"github.com/cuemby/collabcore/pkg/types"
)

func parseIdentity(tenantArg, objectArg string) (types.Tenant, types.ObjectID, error) {
	tenantID, err := strconv.ParseInt(tenantArg, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid tenant id: %w", err)
	}
	return types.Tenant(tenantID), types.ObjectID(objectArg), nil
}
