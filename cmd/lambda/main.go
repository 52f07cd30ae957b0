package main

import (
	"context"
	"log"

	"github.com/treekit/arbor/cache"
	"github.com/treekit/arbor/config"
	"github.com/treekit/arbor/internal/lambda"
	"github.com/treekit/arbor/repository"

	awslambda "github.com/aws/aws-lambda-go/lambda"
)

func main() {
	ctx := context.Background()

	// Configuration comes from Secrets Manager when running in AWS
	cfgProvider, err := config.NewAWSConfigProvider()
	if err != nil {
		log.Printf("Falling back to environment config: %v", err)
		cfgProvider = config.NewEnvProvider("")
	}

	// Initialize repository
	repo, err := repository.NewPostgresRepository(cfgProvider)
	if err != nil {
		log.Fatalf("Failed to create repository: %v", err)
	}
	if err := repo.Initialize(ctx); err != nil {
		log.Fatalf("Failed to initialize repository: %v", err)
	}

	// Cache subtree reads in DynamoDB between invocations
	dynamoCache, err := cache.NewDynamoDBCache()
	if err != nil {
		log.Fatalf("Failed to create cache: %v", err)
	}
	if err := cache.SetProvider(dynamoCache); err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}

	// Create handler with repository
	handler := lambda.NewHandler(repo)

	// Start Lambda
	awslambda.Start(handler.Handle)
}
