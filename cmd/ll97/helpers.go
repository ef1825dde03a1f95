package main

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"ll97dash/building"
	"ll97dash/cascade"
	"ll97dash/config"
	"ll97dash/ml"
)

// engine is everything needed to score a building.
type engine struct {
	assembler *building.Assembler
	fined     ml.Model
	paid      ml.Model
	predictor cascade.Predictor
}

func buildCatalog(c config.CatalogConfig) (*building.Catalog, error) {
	catalog := building.DefaultCatalog()
	if len(c.PropertyTypes) == 0 && len(c.Years) == 0 {
		return catalog, nil
	}
	narrowed, err := catalog.Narrow(c.PropertyTypes, c.Years)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return narrowed, nil
}

func loadModel(name string, mc config.ModelConfig, library string, catalog *building.Catalog) (ml.Model, error) {
	m, err := ml.LoadModel(ml.ModelSpec{
		Name:       name,
		Type:       mc.Type,
		Path:       mc.Path,
		SchemaPath: mc.Schema,
		Library:    library,
	})
	if err != nil {
		return nil, err
	}
	if schema, ok := ml.SchemaOf(m); ok {
		if err := schema.CheckCatalog(catalog); err != nil {
			closeModel(m)
			return nil, fmt.Errorf("%s model: %w", name, err)
		}
	}
	return m, nil
}

// loadEngine loads both classifiers up front and wires the cascade.
func loadEngine(c *config.Config, log *zap.Logger) (*engine, error) {
	catalog, err := buildCatalog(c.Catalog)
	if err != nil {
		return nil, err
	}
	fined, err := loadModel(cascade.StageFined, c.Models.Fined, c.Models.OnnxLibrary, catalog)
	if err != nil {
		return nil, err
	}
	paid, err := loadModel(cascade.StagePaid, c.Models.Paid, c.Models.OnnxLibrary, catalog)
	if err != nil {
		closeModel(fined)
		return nil, err
	}

	eng := &engine{
		assembler: building.NewAssembler(catalog),
		fined:     fined,
		paid:      paid,
	}
	var predictor cascade.Predictor = cascade.New(fined, paid)
	if c.Cache.Size > 0 {
		cached, err := cascade.NewCached(predictor, c.Cache.Size)
		if err != nil {
			eng.Close()
			return nil, fmt.Errorf("prediction cache: %w", err)
		}
		predictor = cached
	}
	eng.predictor = predictor

	for _, m := range eng.models() {
		info := m.Info()
		log.Info("model loaded",
			zap.String("name", info.Name),
			zap.String("type", info.Type),
			zap.String("path", info.Path),
			zap.String("sha256", info.SHA256),
			zap.Int("features", info.Features))
	}
	return eng, nil
}

func (eng *engine) models() []ml.Model {
	return []ml.Model{eng.fined, eng.paid}
}

func (eng *engine) infos() []ml.ModelInfo {
	return []ml.ModelInfo{eng.fined.Info(), eng.paid.Info()}
}

func (eng *engine) Close() error {
	return errors.Join(closeModel(eng.fined), closeModel(eng.paid))
}

func closeModel(m ml.Model) error {
	if c, ok := m.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
