// Package logger envuelve un logger zap de proceso y permite que los
// loggers por request viajen en context.Context.
//
// main llama a Init una vez. Los servicios toman un logger con scope así:
//
//	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("Exchange"))
//
// Fuera de un request, L() devuelve el singleton.
package logger
