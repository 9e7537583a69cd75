package sandbox

import "github.com/ploston/dael/internal/daelerrors"

func errSyntax(format string, args ...interface{}) *daelerrors.Error {
	return daelerrors.New(daelerrors.CodeSyntax, format, args...)
}

func errSecurity(format string, args ...interface{}) *daelerrors.Error {
	return daelerrors.New(daelerrors.CodeSecurity, format, args...)
}

func errRuntime(format string, args ...interface{}) *daelerrors.Error {
	return daelerrors.New(daelerrors.CodeRuntime, format, args...)
}

func errTimeout(format string, args ...interface{}) *daelerrors.Error {
	return daelerrors.New(daelerrors.CodeTimeout, format, args...)
}

func errRejected(format string, args ...interface{}) *daelerrors.Error {
	return daelerrors.New(daelerrors.ToolRejected, format, args...)
}
