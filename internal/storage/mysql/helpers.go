package mysql

import (
	apierrors "github.com/meridianhq/platform/pkg/errors"
	"github.com/meridianhq/platform/pkg/utils"
)

func newID() string {
	return utils.GenerateID()
}

func isNotFound(err error) bool {
	return apierrors.IsNotFound(err)
}
