package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/doteapp/dote/internal/core/domain"
	"github.com/doteapp/dote/internal/pkg/geospatial"
)

// buildSchema creates the read-only GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	coordinateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Coordinate",
		Fields: graphql.Fields{
			"latitude":  &graphql.Field{Type: graphql.Float},
			"longitude": &graphql.Field{Type: graphql.Float},
		},
	})

	walkType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Walk",
		Fields: graphql.Fields{
			"id":                   &graphql.Field{Type: graphql.String},
			"dog_id":               &graphql.Field{Type: graphql.String},
			"walker_id":            &graphql.Field{Type: graphql.String},
			"status":               &graphql.Field{Type: graphql.String},
			"distance_km":          &graphql.Field{Type: graphql.Float},
			"territory_gained_km2": &graphql.Field{Type: graphql.Float},
			"points_count":         &graphql.Field{Type: graphql.Int},
			"paws_earned":          &graphql.Field{Type: graphql.Int},
			"hull":                 &graphql.Field{Type: graphql.NewList(coordinateType)},
			"started_at": &graphql.Field{
				Type: graphql.DateTime,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(domain.WalkSession).StartedAt, nil
				},
			},
			"ended_at": &graphql.Field{
				Type: graphql.DateTime,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if t := p.Source.(domain.WalkSession).EndedAt; t != nil {
						return *t, nil
					}
					return nil, nil
				},
			},
		},
	})

	territoryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Territory",
		Fields: graphql.Fields{
			"dog_id":   &graphql.Field{Type: graphql.String},
			"area_km2": &graphql.Field{Type: graphql.Float},
			"version":  &graphql.Field{Type: graphql.Int},
			"polygon_count": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return len(p.Source.(*domain.Territory).Shape), nil
				},
			},
			"geojson": &graphql.Field{
				Type:        graphql.String,
				Description: "Territory shape as a GeoJSON feature",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					data, err := geospatial.TerritoryFeature(p.Source.(*domain.Territory)).MarshalJSON()
					if err != nil {
						return nil, err
					}
					return string(data), nil
				},
			},
		},
	})

	statsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "DogStats",
		Fields: graphql.Fields{
			"dog_id":            &graphql.Field{Type: graphql.String},
			"area_km2":          &graphql.Field{Type: graphql.Float},
			"polygon_count":     &graphql.Field{Type: graphql.Int},
			"completed_walks":   &graphql.Field{Type: graphql.Int},
			"total_distance_km": &graphql.Field{Type: graphql.Float},
		},
	})

	leaderboardType := graphql.NewObject(graphql.ObjectConfig{
		Name: "LeaderboardEntry",
		Fields: graphql.Fields{
			"rank":     &graphql.Field{Type: graphql.Int},
			"dog_id":   &graphql.Field{Type: graphql.String},
			"area_km2": &graphql.Field{Type: graphql.Float},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"territory": &graphql.Field{
				Type:        territoryType,
				Description: "Merged territory of a dog",
				Args: graphql.FieldConfigArgument{
					"dog_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Territories.GetTerritory(p.Context, p.Args["dog_id"].(string))
				},
			},
			"stats": &graphql.Field{
				Type:        statsType,
				Description: "Territory and walk totals of a dog",
				Args: graphql.FieldConfigArgument{
					"dog_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Territories.Stats(p.Context, p.Args["dog_id"].(string))
				},
			},
			"leaderboard": &graphql.Field{
				Type:        graphql.NewList(leaderboardType),
				Description: "Dogs ranked by territory area",
				Args: graphql.FieldConfigArgument{
					"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 10},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Territories.Leaderboard(p.Context, p.Args["limit"].(int))
				},
			},
			"walk": &graphql.Field{
				Type:        walkType,
				Description: "Get a walk by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					s, err := deps.Walks.GetSession(p.Context, p.Args["id"].(string))
					if err != nil {
						return nil, err
					}
					return *s, nil
				},
			},
			"walks": &graphql.Field{
				Type:        graphql.NewList(walkType),
				Description: "Walks of a dog, newest first",
				Args: graphql.FieldConfigArgument{
					"dog_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Walks.ListWalks(p.Context, p.Args["dog_id"].(string),
						p.Args["offset"].(int), p.Args["limit"].(int))
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
