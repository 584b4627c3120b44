// Package ddbstore implements store.IStore on top of an Amazon DynamoDB table.
//
// Every key is one item: the binary hash key attribute "k" holds the key, the binary attribute
// "v" the value. The table has to exist, e.g.
//
//	aws dynamodb create-table \
//	  --table-name xkv \
//	  --attribute-definitions AttributeName=k,AttributeType=B \
//	  --key-schema AttributeName=k,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
//
// Scan returns store.RetCUnsupportedOperation since a hashed table can't enumerate a key range.
// Use astore.NewAsyncStore to drive the store through the asynchronous interface.
package ddbstore
