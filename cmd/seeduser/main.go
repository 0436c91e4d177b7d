package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jmiconnect/portal/internal/config"
	"github.com/jmiconnect/portal/internal/models"
	"github.com/jmiconnect/portal/internal/repository"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// seeduser creates a portal account with a bcrypt password, for local setups
// backed by DynamoDB Local.
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using process environment")
	}

	username := flag.String("username", "", "account username (document id)")
	email := flag.String("email", "", "email address used for password resets")
	password := flag.String("password", "", "initial password")
	role := flag.String("role", models.RoleStudent, "student or cr")
	section := flag.String("section", "", "class section")
	flag.Parse()

	if strings.TrimSpace(*username) == "" || *password == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *role != models.RoleStudent && *role != models.RoleCR {
		logger.WithField("role", *role).Fatal("Role must be student or cr")
	}

	dbCfg := config.LoadDynamoDB()
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(dbCfg.Region)}
	if dbCfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{URL: dbCfg.Endpoint, SigningRegion: dbCfg.Region}, nil
			})))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load AWS config")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		logger.WithError(err).Fatal("Failed to hash password")
	}

	repo := repository.NewUserRepository(dynamodb.NewFromConfig(awsCfg), dbCfg.TableName, dbCfg.EmailIndex, logger)

	user := &models.User{
		Username: strings.TrimSpace(*username),
		Email:    strings.TrimSpace(*email),
		Password: string(hash),
		Role:     *role,
		Section:  *section,
	}
	if err := repo.Create(ctx, user); err != nil {
		logger.WithError(err).Fatal("Failed to create user")
	}

	logger.WithField("username", user.Username).Info("User created")
}
